package memory_test

import (
	"testing"

	"github.com/aretw0/troupe/pkg/adapters/memory"
	contract "github.com/aretw0/troupe/pkg/ports/tests"
)

func TestInMemoryLoader_Contract(t *testing.T) {
	data := map[string]string{
		"light":  "id: light\nstates:\n  green: {}\n",
		"toggle": "id: toggle\nstates:\n  off: {}\n",
	}

	bytesData := make(map[string][]byte)
	for k, v := range data {
		bytesData[k] = []byte(v)
	}

	contract.DefinitionLoaderContractTest(t, memory.NewLoader("yaml", data), bytesData)
}
