package services

import (
	"drive-csv-ingest/models"
	"drive-csv-ingest/storage"
	"drive-csv-ingest/utils"
)

// Observer receives progress events from a Pipeline run.
type Observer interface {
	storage.BatchObserver
	FileSelected(file models.RemoteFile)
	Downloaded(file models.RemoteFile, bytes int)
	Parsed(headers []string, rows int)
	RowRejected(line int, reason string)
	Finished(res *Result)
}

// LogObserver reports progress through a Logger.
type LogObserver struct {
	logger *utils.Logger
}

func NewLogObserver(logger *utils.Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

func (o *LogObserver) FileSelected(file models.RemoteFile) {
	o.logger.WithFields(map[string]any{
		"file_id":  file.ID,
		"mime":     file.MimeType,
		"modified": file.ModifiedTime,
	}).Info("[pipeline] Selected %q", file.Name)
}

func (o *LogObserver) Downloaded(file models.RemoteFile, bytes int) {
	o.logger.WithField("file_id", file.ID).Info("[pipeline] Downloaded %d bytes", bytes)
}

func (o *LogObserver) Parsed(headers []string, rows int) {
	o.logger.Info("[pipeline] Parsed %d columns, %d data rows", len(headers), rows)
}

func (o *LogObserver) RowRejected(line int, reason string) {
	o.logger.WithField("line", line).Warn("[pipeline] Row rejected: %s", reason)
}

func (o *LogObserver) BatchCommitted(index, size, inserted int) {
	o.logger.WithField("batch", index).Info("[pipeline] Batch %d committed: %d rows, %d new", index, size, inserted)
}

func (o *LogObserver) BatchFailed(index, size int, err error) {
	o.logger.WithField("batch", index).Warn("[pipeline] Batch %d failed, %d rows skipped: %v", index, size, err)
}

func (o *LogObserver) Finished(res *Result) {
	o.logger.WithFields(map[string]any{
		"processed":  res.Processed,
		"skipped":    res.Skipped,
		"rejected":   res.Rejected,
		"malformed":  res.Malformed,
		"duplicates": res.Duplicates,
	}).Info("[pipeline] Done: %d processed, %d skipped", res.Processed, res.Skipped)
}
