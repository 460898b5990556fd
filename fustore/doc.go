// Package fustore persists faceunlock state.
//
// # Agent storage
//
// The ProfileStore keeps enrolled face profiles and runtime options in a
// bbolt database under the data directory (%PROGRAMDATA%\faceunlock on
// Windows, /var/lib/faceunlock elsewhere). Records are CBOR with integer
// keys. Account passwords are sealed before they are written: with DPAPI
// on Windows and nacl/secretbox under an embedded key elsewhere. The
// embedded key keeps passwords out of plain text but is not a secret from
// anyone holding the binary.
//
// # Host storage
//
// The host reads its switches through a DataStore: the registry
// (LM\SOFTWARE\faceunlock on Windows) or a key=value config file.
package fustore
