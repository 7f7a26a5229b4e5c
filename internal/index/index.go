package index

// Ledger is the import ledger used by the importer and the API. Consumers
// depend on this interface rather than *DB.
type Ledger interface {
	UpsertPage(p PageRow) error
	AdoptPage(p PageRow) error
	GetPage(notionID string) (*PageRow, error)
	PageByPath(path string) (*PageRow, error)
	DeletePage(notionID string) error
	DeleteByPath(path string) error
	ListPages(limit, offset int) ([]PageRow, int, error)
	SearchPages(query string, limit int) ([]PageRow, error)
	AllPaths() (map[string]string, error)
	AllChecksums() (map[string]string, error)
	ReplaceAssets(pageID string, assets []AssetRow) error
	Assets(pageID string) ([]AssetRow, error)
	RecordRun(r RunRow) error
	Runs(limit int) ([]RunRow, error)
	Close() error
}

var _ Ledger = (*DB)(nil)
