package utils

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSlug(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Exercise in G Major", "exercise-in-g-major"},
		{"E小步舞曲 No.1", "e-xiao-bu-wu-qu-no-1"},
		{"  Bach: BWV 846!  ", "bach-bwv-846"},
		{"！？", "harmonization"},
		{"2024", "harmonization-2024"},
		{"  007  ", "harmonization-007"},
		{"1 2", "1-2"},
	}

	for _, tt := range tests {
		slug := GenerateSlug(tt.title)
		assert.Equal(t, tt.want, slug, tt.title)

		// 路由会先把参数当作 id 解析
		_, err := strconv.ParseInt(slug, 10, 64)
		assert.Error(t, err, "slug %q 不能被解析为 id", slug)
	}
}

func TestGenerateRandomID(t *testing.T) {
	id := GenerateRandomID(3, 4)
	require.Len(t, id, 7)
	assert.Regexp(t, `^[a-z]{3}[0-9]{4}$`, id)
}

func TestGenerateRandomExercise(t *testing.T) {
	for i := 0; i < 20; i++ {
		job := GenerateRandomExercise(8)
		require.Len(t, job.BassLine, 8)
		assert.Equal(t, job.BassLine[0].Bass, job.BassLine[7].Bass, "练习以主音开始和结束")

		positions, err := BuildPositions(job.Key, job.BassLine)
		require.NoError(t, err, job.Key)
		assert.Len(t, positions, 8)
	}
}
