package config

type WorkerKeyStruct struct {
	PersistViolationsQueue string
	PersistResponsesQueue  string
}

var WorkerKey = &WorkerKeyStruct{
	PersistViolationsQueue: "persist_violations_queue",
	PersistResponsesQueue:  "persist_responses_queue",
}
