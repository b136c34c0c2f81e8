package strutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStrListContains(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	assert.True(StrListContains([]string{"http", "https"}, "https"))
	assert.False(StrListContains([]string{"http", "https"}, "ftp"))
	assert.False(StrListContains(nil, "http"))
}

func TestRemoveDuplicatesStable(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		arr  []string
		want []string
	}{
		{
			name: "removes-duplicates",
			arr:  []string{"store_write", "publish_data", "store_write"},
			want: []string{"store_write", "publish_data"},
		},
		{
			name: "drops-empty-elements",
			arr:  []string{"store_write", "", "store_write"},
			want: []string{"store_write"},
		},
		{
			name: "preserves-order",
			arr:  []string{"c", "a", "b", "a", "c"},
			want: []string{"c", "a", "b"},
		},
		{
			name: "nil-input",
			arr:  nil,
			want: []string{},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert := assert.New(t)
			assert.Equal(tt.want, RemoveDuplicatesStable(tt.arr))
		})
	}
}
