package config

type WorkerKeyStruct struct {
	PersistProctoringEventsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistProctoringEventsQueue: "persist_proctoring_events_queue",
}
