package system

import (
	"container/list"
	"image"
	"sync"
)

// DefaultPoolSizes is how many distinct image bounds the shared pool keeps.
const DefaultPoolSizes = 8

// ImagePool recycles *image.RGBA buffers by bounds. Batches usually repeat a
// few sizes; only the most recently requested maxSizes bounds stay pooled, so
// a batch of all-different images does not grow the pool without limit.
type ImagePool struct {
	mu       sync.Mutex
	maxSizes int
	buckets  map[image.Rectangle]*list.Element
	recent   *list.List // of *bucket, most recent first
}

type bucket struct {
	rect image.Rectangle
	pool sync.Pool
}

func NewImagePool(maxSizes int) *ImagePool {
	if maxSizes < 1 {
		maxSizes = 1
	}
	return &ImagePool{
		maxSizes: maxSizes,
		buckets:  make(map[image.Rectangle]*list.Element),
		recent:   list.New(),
	}
}

var sharedPool = NewImagePool(DefaultPoolSizes)

// GetImage returns an *image.RGBA with the given bounds. Its contents are
// unspecified; callers overwrite every pixel.
func GetImage(rect image.Rectangle) *image.RGBA {
	return sharedPool.Get(rect)
}

// PutImage hands a buffer back to the pool. The caller must not use img after.
func PutImage(img *image.RGBA) {
	sharedPool.Put(img)
}

func (p *ImagePool) Get(rect image.Rectangle) *image.RGBA {
	p.mu.Lock()
	b := p.touch(rect)
	p.mu.Unlock()

	if img, ok := b.pool.Get().(*image.RGBA); ok {
		return img
	}
	return image.NewRGBA(rect)
}

// Put keeps img for reuse if its bounds are still pooled.
func (p *ImagePool) Put(img *image.RGBA) {
	if img == nil {
		return
	}
	p.mu.Lock()
	e, ok := p.buckets[img.Rect]
	p.mu.Unlock()

	if ok {
		e.Value.(*bucket).pool.Put(img)
	}
}

// Sizes returns how many distinct bounds are pooled.
func (p *ImagePool) Sizes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buckets)
}

// touch returns the bucket for rect, creating it and evicting the least
// recently used one when full. p.mu must be held.
func (p *ImagePool) touch(rect image.Rectangle) *bucket {
	if e, ok := p.buckets[rect]; ok {
		p.recent.MoveToFront(e)
		return e.Value.(*bucket)
	}

	b := &bucket{rect: rect}
	p.buckets[rect] = p.recent.PushFront(b)
	for p.recent.Len() > p.maxSizes {
		oldest := p.recent.Back()
		p.recent.Remove(oldest)
		delete(p.buckets, oldest.Value.(*bucket).rect)
	}
	return b
}
