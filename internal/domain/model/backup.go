package model

import "time"

// Целостность резервной копии.
const (
	IntegrityVerified = "verified"
	IntegrityPending  = "pending"
	IntegrityFailed   = "failed"
)

// Типы резервных копий.
const (
	BackupTypeFull        = "full"
	BackupTypeIncremental = "incremental"
)

// Backup - метаданные резервной копии. Хранятся в таблице backups,
// файлы дампа и архива документов лежат в каталоге бэкапов.
type Backup struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Description       string    `json:"description,omitempty"`
	CreatedAt         time.Time `json:"date"`
	SizeBytes         int64     `json:"sizeBytes"`
	Size              string    `json:"size"`
	Integrity         string    `json:"integrity"`
	Type              string    `json:"type"`
	IncludesDocuments bool      `json:"includesDocuments"`
	DocumentTypes     []string  `json:"documentTypes"`
	DBPath            string    `json:"path"`
	DocumentsPath     string    `json:"documentsPath,omitempty"`
	OffsiteKey        string    `json:"offsiteKey,omitempty"`
	// Orphan - файл найден сканированием каталога, записи в БД нет.
	Orphan bool `json:"orphan,omitempty"`
}

// Files - пути файлов копии: дамп и, если есть, архив документов.
func (b *Backup) Files() []string {
	files := []string{b.DBPath}
	if b.DocumentsPath != "" {
		files = append(files, b.DocumentsPath)
	}
	return files
}
