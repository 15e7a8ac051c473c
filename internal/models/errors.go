package models

import "errors"

var (
	ErrIngestion   = errors.New("ingestion failed")
	ErrEmptyCorpus = errors.New("document contains no extractable text")
	ErrIndexBuild  = errors.New("index build failed")
	ErrRetrieval   = errors.New("retrieval failed")
	ErrGeneration  = errors.New("generation failed")
)
