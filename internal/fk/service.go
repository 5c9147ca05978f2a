package fk

// FKService coordinates the index, the filesystem and the device enumerator
// to run inventory scans, hash refreshes and duplicate reports.
type FKService struct {
	database Database
	fsmgr    FilesystemManager
	devices  DeviceEnumerator
	logger   Logger
	clock    Clock
}

// NewFKService creates a service over the given collaborators.
func NewFKService(database Database, fsmgr FilesystemManager, devices DeviceEnumerator, logger Logger, clock Clock) *FKService {
	if logger == nil {
		logger = NewNopLogger()
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &FKService{
		database: database,
		fsmgr:    fsmgr,
		devices:  devices,
		logger:   logger,
		clock:    clock,
	}
}
