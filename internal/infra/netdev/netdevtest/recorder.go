// Package netdevtest provides a recording netdev.Manager.
package netdevtest

import "fmt"

// Recorder records link operations as "Op name" strings and tracks which
// links exist. Per-operation errors can be injected.
type Recorder struct {
	Calls []string
	Links map[string]bool // name -> up

	AddErr     error
	SetUpErr   error
	SetDownErr error
	DeleteErr  error
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{Links: make(map[string]bool)}
}

func (r *Recorder) Add(name string) error {
	r.Calls = append(r.Calls, "Add "+name)
	if r.AddErr != nil {
		return r.AddErr
	}
	if _, ok := r.Links[name]; ok {
		return fmt.Errorf("interface %q already exists", name)
	}
	r.Links[name] = false
	return nil
}

func (r *Recorder) SetUp(name string) error {
	r.Calls = append(r.Calls, "SetUp "+name)
	if r.SetUpErr != nil {
		return r.SetUpErr
	}
	r.Links[name] = true
	return nil
}

func (r *Recorder) SetDown(name string) error {
	r.Calls = append(r.Calls, "SetDown "+name)
	if r.SetDownErr != nil {
		return r.SetDownErr
	}
	if _, ok := r.Links[name]; ok {
		r.Links[name] = false
	}
	return nil
}

func (r *Recorder) Delete(name string) error {
	r.Calls = append(r.Calls, "Delete "+name)
	if r.DeleteErr != nil {
		return r.DeleteErr
	}
	delete(r.Links, name)
	return nil
}
