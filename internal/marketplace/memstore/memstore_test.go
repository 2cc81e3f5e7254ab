package memstore_test

import (
	"testing"

	"github.com/sudo-init-do/servicehub/internal/marketplace/memstore"
	"github.com/sudo-init-do/servicehub/internal/marketplace/storetest"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Backend {
		return memstore.New()
	})
}
