package integration

import (
	"time"

	"sfex/internal/archive"
)

const (
	containerStartupTimeout = 60
)

func testArchivedFile(fileID, vendorID string) archive.ArchivedFile {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return archive.ArchivedFile{
		FileID:        fileID,
		VendorID:      vendorID,
		CorrelationID: "corr-" + fileID,
		SourcePath:    "/incoming/" + vendorID + "/" + fileID + ".csv",
		ArchivePath:   "/archive/" + vendorID + "/" + fileID + ".csv",
		ContentHash:   "deadbeef",
		SizeBytes:     128,
		RecordCount:   3,
		IsValid:       true,
		ReceivedAt:    now.Add(-time.Minute),
		ProcessedAt:   now,
	}
}
