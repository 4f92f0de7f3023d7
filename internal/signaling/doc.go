// Package signaling is the WebSocket and HTTP surface of the relay.
//
// Each WebSocket connection is bound to the identity named in its URL path,
// registered through the lifecycle Manager and fed frame by frame into the
// Router. The package also hosts the login bootstrap and the admin
// side-channel routes.
package signaling
