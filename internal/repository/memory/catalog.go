package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/stemsi/proctorexam/internal/model"
	"github.com/stemsi/proctorexam/internal/repository"
)

// Catalog serves exam definitions from memory.
type Catalog struct {
	mu    sync.RWMutex
	exams map[uuid.UUID]*model.ExamDefinition
}

// NewCatalog returns a Catalog holding the given exams.
func NewCatalog(exams ...*model.ExamDefinition) *Catalog {
	c := &Catalog{exams: make(map[uuid.UUID]*model.ExamDefinition)}
	for _, e := range exams {
		c.Put(e)
	}
	return c
}

// Put adds or replaces an exam.
func (c *Catalog) Put(e *model.ExamDefinition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exams[e.ID] = e
}

func (c *Catalog) GetDefinition(_ context.Context, id uuid.UUID) (*model.ExamDefinition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.exams[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return e, nil
}
