package hsm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stateforward/go-rxhsm"
)

func TestCalculatePath(t *testing.T) {
	tests := []struct {
		name   string
		source []string
		target []string
		exit   []string
		enter  []string
	}{
		{
			name:   "siblings",
			source: []string{"s", "s1"},
			target: []string{"s", "s2"},
			exit:   []string{"s1"},
			enter:  []string{"s2"},
		},
		{
			name:   "disjoint trees",
			source: []string{"s1", "s1_1"},
			target: []string{"s2", "s2_2"},
			exit:   []string{"s1_1", "s1"},
			enter:  []string{"s2", "s2_2"},
		},
		{
			name:   "identical",
			source: []string{"s", "s1", "s11"},
			target: []string{"s", "s1", "s11"},
			exit:   []string{},
			enter:  []string{},
		},
		{
			name:   "into descendant",
			source: []string{"s"},
			target: []string{"s", "s1", "s11"},
			exit:   []string{},
			enter:  []string{"s1", "s11"},
		},
		{
			name:   "out to ancestor",
			source: []string{"s", "s1", "s11"},
			target: []string{"s"},
			exit:   []string{"s11", "s1"},
			enter:  []string{},
		},
		{
			name:   "empty source",
			source: []string{},
			target: []string{"s", "s1"},
			exit:   []string{},
			enter:  []string{"s", "s1"},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			path := hsm.CalculatePath(test.source, test.target)
			assert.Equal(t, test.exit, path.Exit)
			assert.Equal(t, test.enter, path.Enter)
		})
	}
}

func TestCalculatePathLengths(t *testing.T) {
	source := []int{1, 2, 3, 4, 5}
	target := []int{1, 2, 3, 9}
	for common := 0; common <= 3; common++ {
		path := hsm.CalculatePath(source[common:], target[common:])
		shared := 3 - common
		assert.Len(t, path.Exit, len(source)-common-shared)
		assert.Len(t, path.Enter, len(target)-common-shared)
	}
	path := hsm.CalculatePath(source, target)
	assert.Equal(t, []int{5, 4}, path.Exit)
	assert.Equal(t, []int{9}, path.Enter)
}

func TestCalculatePathDoesNotAliasInput(t *testing.T) {
	target := []string{"s", "s1"}
	path := hsm.CalculatePath([]string{"x"}, target)
	path.Enter[0] = "changed"
	assert.Equal(t, "s", target[0])
}
