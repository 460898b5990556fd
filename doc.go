// Package faceunlock assembles the two halves of a face unlock system.
//
// The Agent runs in the user session. It owns the camera, the recognition
// worker and the profile store, follows the desktop lock cycle, and sends
// a credential over the credential channel when a face matches.
//
// The Host runs next to the logon UI. It receives credentials, answers tile
// queries, and turns input activity on the secure desktop into triggers
// for the agent.
//
// The two only talk through the trigger and credential channels of package
// pipe.
package faceunlock
