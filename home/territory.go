package home

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// A Weather is one weather a territory can have.
type Weather struct {
	Key  uint8
	Name string
}

// Value returns what the target stores to force w: the key in both bytes of
// a little-endian uint16.
func (w Weather) Value() uint16 {
	return uint16(w.Key)<<8 | uint16(w.Key)
}

// A Territory is a zone of the target world.
type Territory struct {
	Key      int32
	Region   string
	Place    string
	Weathers []Weather
}

// Title returns the display name of the territory.
func (t Territory) Title() string {
	return t.Region + " - " + t.Place
}

// weather returns the weather of t whose stored value is raw.
func (t Territory) weather(raw uint16) (Weather, bool) {
	for _, w := range t.Weathers {
		if w.Value() == raw {
			return w, true
		}
	}

	return Weather{}, false
}

// Territories looks territories up by key. Game data services implement it.
type Territories interface {
	Territory(key int32) (Territory, bool)
}

// TerritoryTable is a Territories held in memory.
type TerritoryTable map[int32]Territory

// Territory returns the territory with the given key.
func (t TerritoryTable) Territory(key int32) (Territory, bool) {
	territory, ok := t[key]
	return territory, ok
}

type territoryDoc struct {
	Key      int32  `yaml:"key"`
	Region   string `yaml:"region"`
	Place    string `yaml:"place"`
	Weathers []struct {
		Key  uint8  `yaml:"key"`
		Name string `yaml:"name"`
	} `yaml:"weathers"`
}

// LoadTerritoriesFile reads a territory table from a YAML file.
func LoadTerritoriesFile(path string) (TerritoryTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return LoadTerritories(f)
}

// LoadTerritories reads a territory table:
//
//	- key: 132
//	  region: The Black Shroud
//	  place: New Gridania
//	  weathers:
//	    - {key: 2, name: Fair Skies}
//
// Keys must be unique.
func LoadTerritories(r io.Reader) (TerritoryTable, error) {
	docs := []territoryDoc{}

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(&docs); err != nil && err != io.EOF {
		return nil, fmt.Errorf("home: territories: %w", err)
	}

	table := make(TerritoryTable, len(docs))
	for _, d := range docs {
		if _, dup := table[d.Key]; dup {
			return nil, fmt.Errorf("home: territories: key %d appears twice", d.Key)
		}

		t := Territory{Key: d.Key, Region: d.Region, Place: d.Place}
		for _, w := range d.Weathers {
			t.Weathers = append(t.Weathers, Weather{Key: w.Key, Name: w.Name})
		}

		table[d.Key] = t
	}

	return table, nil
}
