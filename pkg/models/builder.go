package models

import "time"

type FileArrivalEventBuilder struct {
	event *FileArrivalEvent
}

func NewFileArrivalEventBuilder() *FileArrivalEventBuilder {
	return &FileArrivalEventBuilder{
		event: &FileArrivalEvent{},
	}
}

func (b *FileArrivalEventBuilder) WithFileID(fileID string) *FileArrivalEventBuilder {
	b.event.FileID = fileID
	return b
}

func (b *FileArrivalEventBuilder) WithVendorID(vendorID string) *FileArrivalEventBuilder {
	b.event.VendorID = vendorID
	return b
}

func (b *FileArrivalEventBuilder) WithStoragePath(path string) *FileArrivalEventBuilder {
	b.event.StoragePath = path
	return b
}

func (b *FileArrivalEventBuilder) WithContentHash(hash string) *FileArrivalEventBuilder {
	b.event.ContentHash = hash
	return b
}

func (b *FileArrivalEventBuilder) WithSizeBytes(size int64) *FileArrivalEventBuilder {
	b.event.SizeBytes = size
	return b
}

func (b *FileArrivalEventBuilder) WithCorrelationID(correlationID string) *FileArrivalEventBuilder {
	b.event.CorrelationID = correlationID
	return b
}

func (b *FileArrivalEventBuilder) WithReceivedAt(t time.Time) *FileArrivalEventBuilder {
	b.event.ReceivedAt = t
	return b
}

func (b *FileArrivalEventBuilder) Build() *FileArrivalEvent {
	if b.event.ReceivedAt.IsZero() {
		b.event.ReceivedAt = time.Now().UTC()
	}
	return b.event
}
