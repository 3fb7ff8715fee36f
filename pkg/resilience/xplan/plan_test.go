package xplan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptimalConcurrency(t *testing.T) {
	tests := []struct {
		name                       string
		page, files, rpm, capacity int
		wantPage, wantFiles        int
	}{
		{"capacity then rpm", 50, 10, 100, 100, 5, 10},
		{"fits already", 5, 4, 100, 100, 5, 4},
		{"capacity only", 20, 10, 10_000, 100, 10, 10},
		{"rpm only", 10, 10, 100, 1000, 5, 10},
		{"floors at one", 3, 90, 100, 100, 1, 90},
		{"tiny rpm", 4, 2, 1, 100, 1, 2},
		{"files clamped to capacity", 2, 300, 10_000, 200, 1, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := OptimalConcurrency(tt.page, tt.files, tt.rpm, tt.capacity)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPage, p.PageConcurrency)
			assert.Equal(t, tt.wantFiles, p.FileConcurrency)
		})
	}
}

func TestOptimalConcurrency_RespectsBounds(t *testing.T) {
	for page := 1; page <= 60; page += 7 {
		for files := 1; files <= 40; files += 3 {
			for _, rpm := range []int{10, 100, 1000} {
				capacity := 100
				p, err := OptimalConcurrency(page, files, rpm, capacity)
				require.NoError(t, err)

				assert.Equal(t, files, p.FileConcurrency)
				assert.GreaterOrEqual(t, p.PageConcurrency, 1)
				assert.LessOrEqual(t, p.PageConcurrency, page)
				assert.LessOrEqual(t, p.Total(), capacity)
				// page 已经降到 1 时 files 单独超过 rpm/2 无法再缩减
				if files <= rpm/RPMSafetyDivisor {
					assert.LessOrEqual(t, p.Total(), rpm/RPMSafetyDivisor)
				}
			}
		}
	}
}

// files 只按容量截断，不按 rpm/2 截断：结果允许超过 rpm/2，
// ValidateConfig 会对这种负载给出 rpm 告警。
func TestOptimalConcurrency_FilesNotClampedToRPM(t *testing.T) {
	p, err := OptimalConcurrency(10, 60, 100, 200)
	require.NoError(t, err)
	assert.Equal(t, Plan{PageConcurrency: 1, FileConcurrency: 60}, p)
	assert.Greater(t, p.Total(), 100/RPMSafetyDivisor)

	ok, warnings := ValidateConfig(Workload{
		PageConcurrency: p.PageConcurrency,
		FileCount:       p.FileConcurrency,
		RPM:             100,
		TPM:             1_000_000,
		RPD:             10_000,
		GlobalCapacity:  200,
	})
	assert.True(t, ok)
	assert.True(t, containsWarning(warnings, "rpm safety margin 50"))
}

func TestOptimalConcurrency_InvalidArgument(t *testing.T) {
	for _, args := range [][4]int{{0, 1, 1, 1}, {1, 0, 1, 1}, {1, 1, -5, 1}, {1, 1, 1, 0}} {
		_, err := OptimalConcurrency(args[0], args[1], args[2], args[3])
		assert.ErrorIs(t, err, ErrInvalidArgument)
	}
}

func TestPlan_String(t *testing.T) {
	assert.Equal(t, "5 pages x 10 files = 50", Plan{PageConcurrency: 5, FileConcurrency: 10}.String())
}
