package internal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoteEvent(t *testing.T) {
	l := testLoader(t, &fakeEmbedder{dim: 4})

	tracked := writeSourceFile(t, l, "notes.txt", "content")
	hidden := writeSourceFile(t, l, ".hidden.txt", "content")
	unsupported := writeSourceFile(t, l, "image.png", "content")
	subdir := filepath.Join(l.cfg.SourceDir, "nested.txt")
	require.NoError(t, os.Mkdir(subdir, 0755))

	tests := []struct {
		name  string
		event fsnotify.Event
		want  string
	}{
		{"create tracked", fsnotify.Event{Name: tracked, Op: fsnotify.Create}, tracked},
		{"write tracked", fsnotify.Event{Name: tracked, Op: fsnotify.Write}, tracked},
		{"chmod ignored", fsnotify.Event{Name: tracked, Op: fsnotify.Chmod}, ""},
		{"hidden ignored", fsnotify.Event{Name: hidden, Op: fsnotify.Create}, ""},
		{"unsupported ignored", fsnotify.Event{Name: unsupported, Op: fsnotify.Write}, ""},
		{"missing file ignored", fsnotify.Event{Name: filepath.Join(l.cfg.SourceDir, "gone.txt"), Op: fsnotify.Create}, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, l.noteEvent(tc.event))
		})
	}

	t.Run("directory ignored", func(t *testing.T) {
		// The extension matches but stat reports a directory.
		assert.Equal(t, "", l.noteEvent(fsnotify.Event{Name: subdir, Op: fsnotify.Create}))
	})
}

func TestNoteEventRemoveUntracks(t *testing.T) {
	l := testLoader(t, &fakeEmbedder{dim: 4})
	path := writeSourceFile(t, l, "notes.txt", "content")

	require.Equal(t, path, l.noteEvent(fsnotify.Event{Name: path, Op: fsnotify.Write}))

	got := l.noteEvent(fsnotify.Event{Name: path, Op: fsnotify.Remove})
	assert.Equal(t, "", got)

	l.mu.Lock()
	_, stillPending := l.pending[path]
	l.mu.Unlock()
	assert.False(t, stillPending, "remove clears the pending entry")
}

func TestNoteEventProcessingGuard(t *testing.T) {
	l := testLoader(t, &fakeEmbedder{dim: 4})
	path := writeSourceFile(t, l, "notes.txt", "content")

	l.mu.Lock()
	l.processing[path] = true
	l.mu.Unlock()

	assert.Equal(t, "", l.noteEvent(fsnotify.Event{Name: path, Op: fsnotify.Write}),
		"events are ignored while the file is being ingested")

	l.Release(path)
	assert.Equal(t, path, l.noteEvent(fsnotify.Event{Name: path, Op: fsnotify.Write}),
		"release makes the file trackable again")
}

func TestTakeSettled(t *testing.T) {
	l := testLoader(t, &fakeEmbedder{dim: 4})
	now := time.Now()

	l.mu.Lock()
	l.pending["/in/fresh.txt"] = now
	l.pending["/in/b.txt"] = now.Add(-3 * time.Second)
	l.pending["/in/a.txt"] = now.Add(-3 * time.Second)
	l.mu.Unlock()

	ready := l.takeSettled(now)
	assert.Equal(t, []string{"/in/a.txt", "/in/b.txt"}, ready, "settled paths come back sorted")

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.True(t, l.processing["/in/a.txt"])
	assert.True(t, l.processing["/in/b.txt"])
	_, fresh := l.pending["/in/fresh.txt"]
	assert.True(t, fresh, "files inside the settle window stay pending")
	assert.Len(t, l.pending, 1)
}

func TestScanExisting(t *testing.T) {
	l := testLoader(t, &fakeEmbedder{dim: 4})
	doc := writeSourceFile(t, l, "doc.pdf", "x")
	writeSourceFile(t, l, ".hidden.txt", "x")
	writeSourceFile(t, l, "image.png", "x")
	require.NoError(t, os.Mkdir(filepath.Join(l.cfg.SourceDir, "sub"), 0755))

	require.NoError(t, l.scanExisting())

	// Backdated entries settle on the very first tick.
	ready := l.takeSettled(time.Now())
	assert.Equal(t, []string{doc}, ready)
}

func TestTickInterval(t *testing.T) {
	l := testLoader(t, &fakeEmbedder{dim: 4})

	l.cfg.SettleTime = 2 * time.Second
	assert.Equal(t, time.Second, l.tickInterval())

	l.cfg.SettleTime = 100 * time.Millisecond
	assert.Equal(t, 100*time.Millisecond, l.tickInterval())

	l.cfg.SettleTime = 10 * time.Second
	assert.Equal(t, time.Second, l.tickInterval())

	l.cfg.SettleTime = 0
	assert.Equal(t, time.Second, l.tickInterval())
}

func TestWatchDeliversExistingFile(t *testing.T) {
	l := testLoader(t, &fakeEmbedder{dim: 4})
	l.cfg.SettleTime = 200 * time.Millisecond
	path := writeSourceFile(t, l, "preexisting.txt", "content")

	ctx, cancel := context.WithCancel(context.Background())
	fileChan := make(chan string, 1)

	done := make(chan error, 1)
	go func() {
		done <- l.Watch(ctx, fileChan)
	}()

	select {
	case got := <-fileChan:
		assert.Equal(t, path, got)
	case <-time.After(3 * time.Second):
		t.Fatal("watch never delivered the pre-existing file")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watch did not stop on context cancel")
	}
}

func TestSupportedFile(t *testing.T) {
	assert.True(t, supportedFile("a.pdf"))
	assert.True(t, supportedFile("a.MD"))
	assert.True(t, supportedFile("a.txt"))
	assert.False(t, supportedFile("a.docx"))
	assert.False(t, supportedFile("a"))
}

func TestIsHidden(t *testing.T) {
	assert.True(t, isHidden("/data/in/.swap.txt"))
	assert.False(t, isHidden("/data/in/visible.txt"))
}
