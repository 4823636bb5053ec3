// Package helpers contains small utilities shared by the daemon.
package helpers

import (
	"encoding/json"
	"errors"
	"io/ioutil"
)

// DecodeFile reads a JSON configuration file into object.
func DecodeFile(fileName string, object interface{}) error {
	input, err := ioutil.ReadFile(fileName)
	if err != nil {
		return errors.New("Could not open file: " + err.Error())
	}

	if err := json.Unmarshal(input, object); err != nil {
		return errors.New("Could not parse file: " + err.Error())
	}
	return nil
}
