//go:build !cgo

package store

import (
	"context"
	"fmt"
)

var errNoCGO = fmt.Errorf("store: embedded mode requires CGO; set TRACECLI_STORE_ADDR to use server mode instead")

func openEmbeddedMode(_ context.Context, _ *Config) (*Store, error) {
	return nil, errNoCGO
}
