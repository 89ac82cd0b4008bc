package memstore

import (
	"testing"

	"pastebox/internal/storage"
	"pastebox/internal/storage/storetest"
)

var _ storage.Store = (*Store)(nil)

func TestContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storage.Store {
		return New()
	})
}
