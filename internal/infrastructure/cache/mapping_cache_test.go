package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMappingKey(t *testing.T) {
	assert.Equal(t, "hivepos:mapping:yoco_import:HNY-500", mappingKey("yoco_import", "HNY-500"))
}
