package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionCmd_PrintsVersion(t *testing.T) {
	oldIngestor, oldVersion := ingestor, version
	ingestor = &mockIngestor{}
	version = "1.2.3"
	defer func() {
		ingestor, version = oldIngestor, oldVersion
	}()

	out, err := execute(t, "version")
	assert.NoError(t, err)
	assert.Contains(t, out, "artdig version 1.2.3")
}
