package main

import (
	"fmt"
	"time"

	"github.com/K1ngst0m/Goggles/driver"
	"github.com/K1ngst0m/Goggles/present"
)

// vkImporter adapts driver.ExternalGPU to present.ExternalImageImporter,
// importing a producer's dma-buf fd as a VkImage each frame.
type vkImporter struct {
	ext        driver.ExternalGPU
	lastMemory driver.Memory
}

// newVKImporter returns a vkImporter, or an error if gpu does not
// implement driver.ExternalGPU; the caller then runs without importing
// external frames. The type assertion is the only check made: a
// driver/vk GPU passes it whether or not the dma-buf/external-memory
// extensions were enabled.
func newVKImporter(gpu driver.GPU) (*vkImporter, error) {
	ext, ok := gpu.(driver.ExternalGPU)
	if !ok {
		return nil, fmt.Errorf("goggles-viewer: GPU does not support external memory import")
	}
	return &vkImporter{ext: ext}, nil
}

func (i *vkImporter) ImportImage(frame present.ExternalFrame) (present.Imported, error) {
	img, mem, view, err := i.ext.ImportExternalImage(driver.ExternalHandle(frame.Fd), driver.ExternalImageDesc{
		Format:   frame.Format,
		Width:    frame.Width,
		Height:   frame.Height,
		Stride:   frame.Stride,
		Offset:   frame.Offset,
		Modifier: frame.Modifier,
	})
	if err != nil {
		return present.Imported{}, err
	}
	i.lastMemory = mem
	return present.Imported{Image: img, View: view}, nil
}

func (i *vkImporter) ReleaseImage(im present.Imported) {
	im.View.Destroy()
	im.Image.Destroy()
	if i.lastMemory != nil {
		i.lastMemory.Destroy()
		i.lastMemory = nil
	}
}

// vkSync adapts driver.ExternalGPU's timeline-semaphore import/wait/
// signal to present.CrossProcessSync.
type vkSync struct {
	ext      driver.ExternalGPU
	ready    driver.TimelineSemaphore
	consumed driver.TimelineSemaphore
}

func newVKSync(gpu driver.GPU) (*vkSync, error) {
	ext, ok := gpu.(driver.ExternalGPU)
	if !ok {
		return nil, fmt.Errorf("goggles-viewer: GPU does not support external semaphore import")
	}
	return &vkSync{ext: ext}, nil
}

func (s *vkSync) ImportSemaphores(readyFd, consumedFd int) error {
	if s.ready != nil {
		s.ready.Destroy()
	}
	if s.consumed != nil {
		s.consumed.Destroy()
	}
	ready, err := s.ext.ImportExternalTimelineSemaphore(driver.ExternalHandle(readyFd))
	if err != nil {
		return err
	}
	consumed, err := s.ext.ImportExternalTimelineSemaphore(driver.ExternalHandle(consumedFd))
	if err != nil {
		ready.Destroy()
		return err
	}
	s.ready = ready
	s.consumed = consumed
	return nil
}

func (s *vkSync) WaitFrameReady(value uint64, timeout time.Duration) error {
	return s.ext.WaitTimeline(s.ready, value, timeout)
}

func (s *vkSync) SignalFrameConsumed(value uint64) error {
	return s.ext.SignalTimeline(s.consumed, value)
}
