package addrpool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileState persists pool state as a JSON file. Writes go through a temp
// file plus rename so a crash mid-write never truncates the state.
type FileState struct {
	Path string
}

func (f *FileState) Load(_ context.Context) (State, error) {
	var st State
	b, err := os.ReadFile(f.Path)
	if os.IsNotExist(err) {
		return State{Used: map[string]Account{}}, nil
	}
	if err != nil {
		return st, fmt.Errorf("read %s: %w", f.Path, err)
	}
	if err := json.Unmarshal(b, &st); err != nil {
		return st, fmt.Errorf("parse %s: %w", f.Path, err)
	}
	if st.Used == nil {
		st.Used = map[string]Account{}
	}
	return st, nil
}

func (f *FileState) Save(_ context.Context, st State) error {
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(f.Path)
	tmp, err := os.CreateTemp(dir, ".pool-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), f.Path)
}
