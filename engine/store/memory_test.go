package store_test

import (
	"testing"

	"github.com/warp/readiness-engine/engine/store"
	"github.com/warp/readiness-engine/engine/storetest"
)

func TestMemory(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Backend {
		return store.NewMemory()
	})
}
