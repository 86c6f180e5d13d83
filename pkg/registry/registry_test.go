package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultManifestCompiles(t *testing.T) {
	reg := Default()
	v, err := Compile(reg)
	require.NoError(t, err)
	assert.NotNil(t, v)
	assert.Len(t, reg.Intents, 8)
}

func TestCheckHandlers(t *testing.T) {
	reg := Default()
	all := []string{
		"product_search", "add_to_cart", "view_cart", "remove_from_cart",
		"checkout", "order_status", "greeting", "unknown",
	}

	assert.NoError(t, CheckHandlers(reg, all))

	missingHandler := all[:len(all)-1]
	err := CheckHandlers(reg, missingHandler)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown")

	extraHandler := append(append([]string{}, all...), "time_travel")
	err = CheckHandlers(reg, extraHandler)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "time_travel")
}

func TestValidateResponse(t *testing.T) {
	v, err := Compile(Default())
	require.NoError(t, err)

	valid := map[string]interface{}{
		"message":    "I found 2 great options for you!",
		"intent":     "product_search",
		"confidence": 0.93,
		"products":   []interface{}{map[string]interface{}{"id": "p1"}},
	}
	assert.NoError(t, v.ValidateResponse("product_search", valid))

	missingMessage := map[string]interface{}{"intent": "product_search"}
	assert.Error(t, v.ValidateResponse("product_search", missingMessage))

	badConfidence := map[string]interface{}{"message": "hi", "confidence": 1.5}
	assert.Error(t, v.ValidateResponse("greeting", badConfidence))

	// Intents outside the manifest are not constrained.
	assert.NoError(t, v.ValidateResponse("faq", map[string]interface{}{}))
}

func TestLoadRegistryRoundtrip(t *testing.T) {
	reg := Default()
	data, err := json.Marshal(reg)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "intents.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	loaded, err := LoadRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, reg.Version, loaded.Version)
	assert.Len(t, loaded.Intents, len(reg.Intents))
	assert.NotNil(t, loaded.Intent("checkout"))
	assert.Nil(t, loaded.Intent("nope"))
}
