package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on outbound requests.
const AccessTokenHeaderName = "access_token"

// PrincipalHeaderName carries the principal a request acts on. The server
// checks it against the token subject.
const PrincipalHeaderName = "principal_id"
