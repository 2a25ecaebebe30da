// Package adapters enumerates the built-in backend adapters. The
// provider registry is populated from this map plus whatever
// credentials the configuration supplies.
package adapters

import (
	"github.com/skymux/skymux-go/internal/adapters/dropbox"
	"github.com/skymux/skymux-go/internal/adapters/onecloud"
	"github.com/skymux/skymux-go/internal/cloud"
)

// Builtin returns the factory map of compiled-in adapters, keyed by
// provider id. Callers get a fresh map and may trim it before loading
// the registry.
func Builtin() map[string]cloud.Factory {
	return map[string]cloud.Factory{
		dropbox.ProviderID:  dropbox.Factory(),
		onecloud.ProviderID: onecloud.Factory(),
	}
}
