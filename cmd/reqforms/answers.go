package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/evidenceworks/reqforms/internal/catalog"
	"github.com/evidenceworks/reqforms/internal/forms"
	"github.com/evidenceworks/reqforms/internal/session"
)

// answersFile is the YAML shape of a filled form: root fields plus the
// repeating groups of the form type. The first entry of each list fills the
// form's built-in index-0 instance; later entries add instances.
type answersFile struct {
	Fields     map[string]string   `yaml:"fields"`
	Locations  []map[string]string `yaml:"locations"`
	DVRSystems []dvrAnswers        `yaml:"dvrSystems"`
}

type dvrAnswers struct {
	Timeframes []map[string]string `yaml:"timeframes"`
	Fields     map[string]string   `yaml:",inline"`
}

func loadAnswers(path string) (*answersFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read answers file: %w", err)
	}
	var a answersFile
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parse answers file: %w", err)
	}
	return &a, nil
}

// applyAnswers plays an answers file into a session as ordinary mutations,
// so conditional rules and validation run exactly as they would for typed
// input.
func applyAnswers(sess *session.Session, a *answersFile) error {
	// Root fields replay in catalog order so a conditional trigger is always
	// set before the fields it reveals, whatever order the YAML map decodes in.
	root := make(map[string]bool)
	for _, d := range catalog.FieldsFor(sess.FormType()) {
		root[d.Name] = true
		value, ok := a.Fields[d.Name]
		if !ok {
			continue
		}
		if err := sess.SetField(d.Name, value); err != nil {
			return err
		}
	}
	for name := range a.Fields {
		if !root[name] {
			return fmt.Errorf("form %s has no root field %q", sess.FormType(), name)
		}
	}

	for i, loc := range a.Locations {
		index := 0
		if i > 0 {
			var err error
			index, err = sess.AddGroup(forms.GroupLocation, forms.NoParent)
			if err != nil {
				return err
			}
		}
		for name, value := range loc {
			if err := sess.SetGroupField(forms.GroupLocation, index, forms.NoParent, name, value); err != nil {
				return err
			}
		}
	}

	for i, dvr := range a.DVRSystems {
		dvrIndex := 0
		if i > 0 {
			var err error
			dvrIndex, err = sess.AddGroup(forms.GroupDVR, forms.NoParent)
			if err != nil {
				return err
			}
		}
		for name, value := range dvr.Fields {
			if err := sess.SetGroupField(forms.GroupDVR, dvrIndex, forms.NoParent, name, value); err != nil {
				return err
			}
		}
		for j, tf := range dvr.Timeframes {
			tfIndex := 0
			if j > 0 {
				var err error
				tfIndex, err = sess.AddGroup(forms.GroupTimeframe, dvrIndex)
				if err != nil {
					return err
				}
			}
			for name, value := range tf {
				if err := sess.SetGroupField(forms.GroupTimeframe, tfIndex, dvrIndex, name, value); err != nil {
					return err
				}
			}
		}
	}

	return nil
}
