// Package cli implements the attachsync command: it loads a manifest of
// desired attachments for one listing and synchronizes the listing's remote
// attachments to it.
//
// Modes:
//
//	attachsync -manifest listing.json [-listing 77]   synchronize
//	attachsync -history 10 -listing 77                show recent runs from the journal
//	attachsync -seal                                  seal an access token secret
//
// Configuration flags (see package config) may be mixed in freely.
//
// A sealed token secret (config "sealed_token_secret") is opened with the
// passphrase from $ESTATESYNC_PASSPHRASE or, if unset, a terminal prompt.
package cli
