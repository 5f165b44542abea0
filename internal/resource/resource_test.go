package resource

import (
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type summary struct {
	Calories int
}

func TestConstructors(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name    string
		res     Resource[*summary]
		state   State
		hasData bool
		message string
		cause   error
	}{
		{"loading absent", Loading[*summary](nil), StateLoading, false, "", nil},
		{"loading cached", Loading(&summary{Calories: 10}), StateLoading, true, "", nil},
		{"success", Success(&summary{Calories: 20}), StateSuccess, true, "", nil},
		{"error absent", Error[*summary]("offline", nil, cause), StateError, false, "offline", cause},
		{"error cached", Error("offline", &summary{Calories: 5}, cause), StateError, true, "offline", cause},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.state, tt.res.State())
			assert.Equal(t, tt.hasData, tt.res.HasData())
			assert.Equal(t, tt.message, tt.res.Message())
			assert.Equal(t, tt.cause, tt.res.Cause())

			// exactly one variant
			active := 0
			for _, b := range []bool{tt.res.IsLoading(), tt.res.IsSuccess(), tt.res.IsError()} {
				if b {
					active++
				}
			}
			assert.Equal(t, 1, active)
		})
	}
}

func TestMapPreservesVariant(t *testing.T) {
	cause := errors.New("timeout")
	toString := func(s *summary) string { return strconv.Itoa(s.Calories) }

	loading := Map(Loading(&summary{Calories: 1}), toString)
	assert.True(t, loading.IsLoading())
	data, ok := loading.Data()
	require.True(t, ok)
	assert.Equal(t, "1", data)

	success := Map(Success(&summary{Calories: 2}), toString)
	assert.True(t, success.IsSuccess())
	data, _ = success.Data()
	assert.Equal(t, "2", data)

	failed := Map(Error("Server error", &summary{Calories: 3}, cause), toString)
	assert.True(t, failed.IsError())
	assert.Equal(t, "Server error", failed.Message())
	assert.Equal(t, cause, failed.Cause())
	data, ok = failed.Data()
	require.True(t, ok)
	assert.Equal(t, "3", data)
}

func TestMapSkipsAbsentData(t *testing.T) {
	called := false
	out := Map(Error[*summary]("offline", nil, nil), func(s *summary) int {
		called = true
		return s.Calories
	})

	assert.False(t, called)
	assert.True(t, out.IsError())
	assert.False(t, out.HasData())
}

func TestMapToAbsentDropsData(t *testing.T) {
	out := Map(Success(&summary{Calories: 5}), func(*summary) *summary { return nil })

	assert.True(t, out.IsSuccess())
	assert.False(t, out.HasData())
	data, ok := out.Data()
	assert.False(t, ok)
	assert.Nil(t, data)

	kept := Map(Loading(&summary{Calories: 5}), func(s *summary) []int { return []int{s.Calories} })
	assert.True(t, kept.HasData())
	values, ok := kept.Data()
	assert.True(t, ok)
	assert.Equal(t, []int{5}, values)
}

func TestMatch(t *testing.T) {
	cases := Cases[[]int, string]{
		Loading: func(_ []int, ok bool) string { return "loading:" + strconv.FormatBool(ok) },
		Success: func(d []int) string { return "success:" + strconv.Itoa(len(d)) },
		Error:   func(msg string, _ []int, ok bool, _ error) string { return "error:" + msg + ":" + strconv.FormatBool(ok) },
	}

	assert.Equal(t, "loading:false", Match(Loading[[]int](nil), cases))
	assert.Equal(t, "success:2", Match(Success([]int{1, 2}), cases))
	assert.Equal(t, "error:offline:true", Match(Error("offline", []int{}, nil), cases))
}

func TestIsAbsent(t *testing.T) {
	var nilPtr *summary
	var nilMap map[string]int
	var nilSlice []int
	var nilErr error

	assert.True(t, IsAbsent(nil))
	assert.True(t, IsAbsent(nilPtr))
	assert.True(t, IsAbsent(nilMap))
	assert.True(t, IsAbsent(nilSlice))
	assert.True(t, IsAbsent(nilErr))

	assert.False(t, IsAbsent(0))
	assert.False(t, IsAbsent(""))
	assert.False(t, IsAbsent([]int{}))
	assert.False(t, IsAbsent(&summary{}))
	assert.False(t, IsAbsent(summary{}))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "loading", StateLoading.String())
	assert.Equal(t, "success", StateSuccess.String())
	assert.Equal(t, "error", StateError.String())
	assert.Equal(t, "state(9)", State(9).String())
}
