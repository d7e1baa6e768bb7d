package config

import (
	"fmt"
	"sort"

	"gopkg.in/ini.v1"
)

// DefaultsSection holds settings shared by every host of the inventory.
const DefaultsSection = "defaults"

// Defaults are the inventory-wide settings. Zero values mean "not set".
type Defaults struct {
	Binary      string
	Sudo        bool
	User        string
	Concurrency int
}

// Inventory is the parsed host inventory file.
type Inventory struct {
	Groups   map[string][]string
	Defaults Defaults
}

// Hosts returns every host of the inventory once, in group order.
func (inv Inventory) Hosts() []string {
	groups := make([]string, 0, len(inv.Groups))
	for group := range inv.Groups {
		groups = append(groups, group)
	}
	sort.Strings(groups)

	seen := make(map[string]bool)
	var hosts []string
	for _, group := range groups {
		for _, h := range inv.Groups[group] {
			if !seen[h] {
				seen[h] = true
				hosts = append(hosts, h)
			}
		}
	}
	return hosts
}

// LoadInventory reads an ini inventory:
//
//	[defaults]
//	binary = yaourt
//	sudo = true
//
//	[web]
//	host1 = 10.0.0.1
func LoadInventory(path string) (Inventory, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return Inventory{}, fmt.Errorf("reading inventory %s: %w", path, err)
	}

	inv := Inventory{Groups: make(map[string][]string)}

	for _, section := range cfg.Sections() {
		name := section.Name()
		if name == DefaultsSection {
			if inv.Defaults, err = readDefaults(section); err != nil {
				return Inventory{}, fmt.Errorf("reading inventory %s: %w", path, err)
			}
			continue
		}
		for _, key := range section.Keys() {
			inv.Groups[name] = append(inv.Groups[name], key.String())
		}
	}

	return inv, nil
}

func readDefaults(section *ini.Section) (Defaults, error) {
	d := Defaults{
		Binary: section.Key("binary").String(),
		User:   section.Key("user").String(),
	}

	if section.HasKey("sudo") {
		sudo, err := section.Key("sudo").Bool()
		if err != nil {
			return Defaults{}, fmt.Errorf("[%s] sudo: %w", DefaultsSection, err)
		}
		d.Sudo = sudo
	}

	if section.HasKey("concurrency") {
		n, err := section.Key("concurrency").Int()
		if err != nil || n < 1 {
			return Defaults{}, fmt.Errorf("[%s] concurrency must be a positive integer", DefaultsSection)
		}
		d.Concurrency = n
	}

	return d, nil
}
