package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/applock/internal/common"
	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

var errPINMismatch = errors.New("pins do not match")

// GetPIN prints prompt to w and reads a PIN from the terminal without echo.
func GetPIN(w io.Writer, prompt string) (string, error) {
	if _, err := fmt.Fprint(w, prompt+": "); err != nil {
		return "", err
	}
	raw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(raw)

	return strings.TrimSpace(string(raw)), nil
}

// GetNewPIN asks for a PIN twice and fails when the entries differ.
func GetNewPIN(w io.Writer) (string, error) {
	pin, err := getPIN(w, "New PIN")
	if err != nil {
		return "", err
	}
	confirm, err := getPIN(w, "Repeat PIN")
	if err != nil {
		return "", err
	}
	if pin != confirm {
		return "", errPINMismatch
	}
	return pin, nil
}
