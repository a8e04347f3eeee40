package models

import "errors"

var (
	ErrLoad         = errors.New("load error")
	ErrEmbedding    = errors.New("embedding error")
	ErrIndexBuild   = errors.New("index build error")
	ErrGeneration   = errors.New("generation error")
	ErrEmptySession = errors.New("no document ingested")

	ErrSessionClosed = errors.New("session closed")
)
