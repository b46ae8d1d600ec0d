package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestItemKind_Folder(t *testing.T) {
	tests := []struct {
		kind ItemKind
		want string
	}{
		{KindModule, "modules"},
		{KindTemplate, "templates"},
		{KindClass, "classes"},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.Folder())

			kind, ok := ParseItemKind(tt.want)
			assert.True(t, ok)
			assert.Equal(t, tt.kind, kind)
		})
	}
}
