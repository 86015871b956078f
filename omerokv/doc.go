/*
	Package omerokv provides types, constants, and functions that have no other dependencies
	and can be used by all packages within omerokv.  This includes typed identifiers for
	objects in the remote image store, image sets used for metadata queries, key/value
	annotation entries, logging, errors, and the compression used for pixel plane transfer.

	Since these elements are used by the client, the query layer, the importers and the
	store emulator, we separate them here and allow reuse in layer-specific types.
*/
package omerokv
