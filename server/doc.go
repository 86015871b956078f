/*
	Package server is a lightweight stand-in for the remote image platform's HTTP API.
	It serves projects, datasets, images, pixel planes and key/value map annotations out
	of a memstore.Store, issues JWT session tokens, and is what the client package is
	tested against.  The omerokv-dev command runs it for offline tutorials.

	It is not a storage engine: nothing is persisted and nothing is versioned.
*/
package server
