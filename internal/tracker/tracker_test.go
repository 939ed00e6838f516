package tracker

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func TestTracker_Lifecycle(t *testing.T) {
	dir := t.TempDir()
	tr, err := Open(dir, day)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "tracker_2026-03-14.json"), tr.Path())

	tick := day
	tr.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}

	require.NoError(t, tr.Add("1554913G"))
	require.NoError(t, tr.Set("1554913G", StatusProcessing, ""))
	require.NoError(t, tr.SetDetections("1554913G", 2))
	require.NoError(t, tr.Set("1554913G", StatusVerified, "OK"))
	require.NoError(t, tr.Set("1554913G", StatusDone, ""))

	e, ok := tr.Get("1554913G")
	require.True(t, ok)
	assert.Equal(t, StatusDone, e.Status)
	assert.Equal(t, 2, e.Detections)
	require.Len(t, e.History, 4)
	assert.Equal(t, StatusPending, e.History[0].Status)
	assert.Equal(t, "OK", e.History[2].Note)
	assert.True(t, e.History[3].At.After(e.History[0].At))
	assert.True(t, tr.Done("1554913G"))

	// 重新打开后内容一致
	again, err := Open(dir, day)
	require.NoError(t, err)
	e2, ok := again.Get("1554913G")
	require.True(t, ok)
	assert.Equal(t, StatusDone, e2.Status)
	assert.Len(t, e2.History, 4)
}

func TestTracker_InvalidTransition(t *testing.T) {
	tr, err := Open(t.TempDir(), day)
	require.NoError(t, err)

	require.NoError(t, tr.Add("a"))
	err = tr.Set("a", StatusDone, "")
	assert.ErrorIs(t, err, ErrTransition)

	require.NoError(t, tr.Set("a", StatusProcessing, ""))
	require.NoError(t, tr.Set("a", StatusError, "timeout"))
	// 失败后允许重试
	require.NoError(t, tr.Set("a", StatusProcessing, "retry"))
}

func TestTracker_Summary(t *testing.T) {
	tr, err := Open(t.TempDir(), day)
	require.NoError(t, err)
	require.NoError(t, tr.StartRun("run-1"))

	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, tr.Add(id))
	}
	require.NoError(t, tr.Set("a", StatusProcessing, ""))
	require.NoError(t, tr.Set("a", StatusError, "decode"))

	assert.Equal(t, []string{"a", "b", "c"}, tr.IDs())
	assert.Equal(t, map[Status]int{StatusPending: 2, StatusError: 1}, tr.Summary())
	assert.Error(t, tr.SetDetections("missing", 1))
}

func TestTracker_ResumeInterruptedRun(t *testing.T) {
	dir := t.TempDir()
	tr, err := Open(dir, day)
	require.NoError(t, err)
	require.NoError(t, tr.Add("a.jpg"))
	require.NoError(t, tr.Set("a.jpg", StatusProcessing, ""))
	require.NoError(t, tr.Add("b.jpg"))
	require.NoError(t, tr.Set("b.jpg", StatusProcessing, ""))
	require.NoError(t, tr.Set("b.jpg", StatusVerified, "OK"))

	// 进程在处理中被杀掉，下一次运行重新打开记录
	again, err := Open(dir, day)
	require.NoError(t, err)
	for _, id := range []string{"a.jpg", "b.jpg"} {
		require.NoError(t, again.Set(id, StatusProcessing, ""), id)
		e, ok := again.Get(id)
		require.True(t, ok)
		assert.Equal(t, StatusProcessing, e.Status)
	}
}
