package assets

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

// DefaultTexture is the shader-visible slot of the 1×1 white texture every
// object samples until it is given another one.
const DefaultTexture uint32 = 0

type textureEntry struct {
	path    string
	slot    renderer.Slot
	texture renderer.Texture
}

// TextureManager loads images into textures and owns their shader-visible
// slots. Device calls only happen on the goroutine calling Load, LoadAll or
// ApplyReloads; decoding and file watching run in the background.
type TextureManager struct {
	device renderer.Device
	views  *renderer.ResourceViewAllocator
	root   string

	mutex   sync.RWMutex
	byPath  map[string]*textureEntry
	byIndex map[uint32]*textureEntry

	fsnotify *fsnotify.Watcher
	pending  map[string]struct{}
	pendMu   sync.Mutex
	done     chan struct{}
	wg       sync.WaitGroup
	isClosed bool
}

// NewTextureManager claims slot 0 of views for the default white texture.
func NewTextureManager(device renderer.Device, views *renderer.ResourceViewAllocator, root string) (*TextureManager, error) {
	if device == nil {
		return nil, core.NilDependency("device")
	}
	if views == nil {
		return nil, core.NilDependency("shader view allocator")
	}
	tm := &TextureManager{
		device:  device,
		views:   views,
		root:    root,
		byPath:  make(map[string]*textureEntry),
		byIndex: make(map[uint32]*textureEntry),
		pending: make(map[string]struct{}),
		done:    make(chan struct{}),
	}

	slot, err := views.AllocateAt(DefaultTexture)
	if err != nil {
		return nil, err
	}
	if _, err := tm.upload("", slot, Solid(1, 1, 255, 255, 255, 255)); err != nil {
		return nil, errors.Wrap(err, "default texture")
	}
	return tm, nil
}

func (tm *TextureManager) resolve(name string) string {
	if filepath.IsAbs(name) || tm.root == "" {
		return filepath.Clean(name)
	}
	return filepath.Join(tm.root, name)
}

// Load returns the slot of the texture at name, relative to the asset root,
// decoding and uploading it the first time it is asked for.
func (tm *TextureManager) Load(name string) (uint32, error) {
	path := tm.resolve(name)
	if index, ok := tm.lookup(path); ok {
		return index, nil
	}
	pixels, err := DecodeImage(path)
	if err != nil {
		return DefaultTexture, err
	}
	return tm.add(path, pixels)
}

// LoadAll decodes every named texture concurrently and uploads them in
// order. The returned slots follow names. It stops at the first failure.
func (tm *TextureManager) LoadAll(ctx context.Context, names []string) ([]uint32, error) {
	paths := make([]string, len(names))
	decoded := make([]*Pixels, len(names))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, name := range names {
		paths[i] = tm.resolve(name)
		if _, ok := tm.lookup(paths[i]); ok {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			pixels, err := DecodeImage(paths[i])
			if err != nil {
				return err
			}
			decoded[i] = pixels
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slots := make([]uint32, len(names))
	for i, path := range paths {
		if index, ok := tm.lookup(path); ok {
			slots[i] = index
			continue
		}
		index, err := tm.add(path, decoded[i])
		if err != nil {
			return nil, err
		}
		slots[i] = index
	}
	return slots, nil
}

// Upload places already decoded pixels in a new slot. The texture is not
// backed by a file and is never reloaded.
func (tm *TextureManager) Upload(name string, pixels *Pixels) (uint32, error) {
	if pixels == nil || pixels.Width == 0 || pixels.Height == 0 {
		return DefaultTexture, errors.Newf("texture %s is empty", name)
	}
	slot, err := tm.views.Allocate()
	if err != nil {
		return DefaultTexture, err
	}
	if _, err := tm.upload("", slot, pixels); err != nil {
		return DefaultTexture, errors.Wrapf(err, "texture %s", name)
	}
	return slot.Index, nil
}

func (tm *TextureManager) lookup(path string) (uint32, bool) {
	tm.mutex.RLock()
	defer tm.mutex.RUnlock()
	entry, ok := tm.byPath[path]
	if !ok {
		return 0, false
	}
	return entry.slot.Index, true
}

func (tm *TextureManager) add(path string, pixels *Pixels) (uint32, error) {
	slot, err := tm.views.Allocate()
	if err != nil {
		return DefaultTexture, err
	}
	if _, err := tm.upload(path, slot, pixels); err != nil {
		return DefaultTexture, errors.Wrapf(err, "texture %s", path)
	}
	core.LogDebug("texture %s loaded into slot %d (%dx%d)", path, slot.Index, pixels.Width, pixels.Height)
	return slot.Index, nil
}

func (tm *TextureManager) upload(path string, slot renderer.Slot, pixels *Pixels) (*textureEntry, error) {
	texture, err := tm.device.CreateTexture(pixels.Width, pixels.Height, metadata.FormatRGBA8Unorm, pixels.Data)
	if err != nil {
		return nil, core.CreationFailed(err, "create texture")
	}
	if err := tm.device.CreateShaderResourceView(texture, tm.views.Heap(), slot.Index); err != nil {
		texture.Destroy()
		return nil, core.CreationFailed(err, "create shader resource view at slot %d", slot.Index)
	}
	entry := &textureEntry{path: path, slot: slot, texture: texture}

	tm.mutex.Lock()
	if path != "" {
		tm.byPath[path] = entry
	}
	tm.byIndex[slot.Index] = entry
	tm.mutex.Unlock()
	return entry, nil
}

// Handle returns the descriptor to bind for the texture in slot index.
func (tm *TextureManager) Handle(index uint32) (metadata.DescriptorHandle, bool) {
	tm.mutex.RLock()
	defer tm.mutex.RUnlock()
	entry, ok := tm.byIndex[index]
	if !ok {
		return metadata.DescriptorHandle{}, false
	}
	return entry.slot.Handle, true
}

// Texture returns the texture in slot index, or nil.
func (tm *TextureManager) Texture(index uint32) renderer.Texture {
	tm.mutex.RLock()
	defer tm.mutex.RUnlock()
	if entry, ok := tm.byIndex[index]; ok {
		return entry.texture
	}
	return nil
}

func (tm *TextureManager) Count() int {
	tm.mutex.RLock()
	defer tm.mutex.RUnlock()
	return len(tm.byIndex)
}

// Watch starts watching the asset root and every directory below it.
// Changed files that are already loaded are queued for ApplyReloads.
func (tm *TextureManager) Watch() error {
	if tm.isClosed {
		return errors.New("texture manager already closed")
	}
	if tm.fsnotify != nil {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create file watcher")
	}
	tm.fsnotify = watcher
	if err := tm.watchRecursive(tm.root); err != nil {
		return err
	}
	tm.wg.Add(1)
	go tm.start()
	return nil
}

func (tm *TextureManager) watchRecursive(root string) error {
	return filepath.Walk(root, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return tm.fsnotify.Add(walkPath)
		}
		return nil
	})
}

func (tm *TextureManager) start() {
	defer tm.wg.Done()
	for {
		select {
		case e, ok := <-tm.fsnotify.Events:
			if !ok {
				return
			}
			if e.Op&fsnotify.Create != 0 {
				if s, err := os.Stat(e.Name); err == nil && s.IsDir() {
					if err := tm.watchRecursive(e.Name); err != nil {
						core.LogWarn("watch %s: %s", e.Name, err)
					}
					continue
				}
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) == 0 || !isImage(e.Name) {
				continue
			}
			path := filepath.Clean(e.Name)
			if _, ok := tm.lookup(path); !ok {
				continue
			}
			tm.pendMu.Lock()
			tm.pending[path] = struct{}{}
			tm.pendMu.Unlock()

		case err, ok := <-tm.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("texture watcher: %s", err)

		case <-tm.done:
			return
		}
	}
}

// ApplyReloads re-uploads every texture whose file changed since the last
// call. The texture keeps its slot; a texture whose size changed is
// recreated behind the same view. It must run between frames.
func (tm *TextureManager) ApplyReloads() int {
	tm.pendMu.Lock()
	if len(tm.pending) == 0 {
		tm.pendMu.Unlock()
		return 0
	}
	paths := make([]string, 0, len(tm.pending))
	for path := range tm.pending {
		paths = append(paths, path)
	}
	clear(tm.pending)
	tm.pendMu.Unlock()

	reloaded := 0
	for _, path := range paths {
		if err := tm.reload(path); err != nil {
			// a half-written file shows up as a decode error; the next write event retries
			core.LogWarn("reload texture %s: %s", path, err)
			continue
		}
		reloaded++
	}
	return reloaded
}

// Reload queues path for the next ApplyReloads, as if its file changed.
func (tm *TextureManager) Reload(name string) {
	tm.pendMu.Lock()
	tm.pending[tm.resolve(name)] = struct{}{}
	tm.pendMu.Unlock()
}

func (tm *TextureManager) reload(path string) error {
	tm.mutex.RLock()
	entry, ok := tm.byPath[path]
	tm.mutex.RUnlock()
	if !ok {
		return errors.Newf("texture %s is not loaded", path)
	}

	pixels, err := DecodeImage(path)
	if err != nil {
		return err
	}
	if pixels.Width == entry.texture.Width() && pixels.Height == entry.texture.Height() {
		if err := tm.device.WriteTexture(entry.texture, pixels.Data); err != nil {
			return err
		}
		core.LogInfo("texture %s reloaded", path)
		return nil
	}

	old := entry.texture
	if _, err := tm.upload(path, entry.slot, pixels); err != nil {
		return err
	}
	old.Destroy()
	core.LogInfo("texture %s reloaded at %dx%d", path, pixels.Width, pixels.Height)
	return nil
}

// Close stops the watcher and destroys every texture.
func (tm *TextureManager) Close() error {
	if tm.isClosed {
		return nil
	}
	tm.isClosed = true
	close(tm.done)
	var err error
	if tm.fsnotify != nil {
		err = tm.fsnotify.Close()
	}
	tm.wg.Wait()

	tm.mutex.Lock()
	defer tm.mutex.Unlock()
	for _, entry := range tm.byIndex {
		entry.texture.Destroy()
	}
	clear(tm.byIndex)
	clear(tm.byPath)
	return err
}
