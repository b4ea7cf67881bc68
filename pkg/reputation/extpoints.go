// Copyright (c) 2019 Repwatch contributors, All rights reserved.
//
// This file is part of Repwatch.
//
// Repwatch is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation version 3 of the License.
//
// Repwatch is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Repwatch. If not, see <https://www.gnu.org/licenses/>.

package reputation

import (
	"sync"
)

// Checkers represent the Checker extension point. Built-in resolution
// modes register here from their package init, deployments may add
// custom checker types the same way.
var Checkers = &checkerExt{
	extensions: make(map[string]Factory),
}

type checkerExt struct {
	sync.Mutex
	extensions map[string]Factory
}

// RegisterExtension registers the checker factory under name, refusing
// duplicates
func RegisterExtension(extension Factory, name string) bool {
	return Checkers.Register(extension, name)
}

// UnregisterExtension removes a previously registered checker
func UnregisterExtension(name string) bool {
	return Checkers.Unregister(name)
}

// Register registers the checker factory under name, refusing duplicates
func (ep *checkerExt) Register(extension Factory, name string) bool {
	ep.Lock()
	defer ep.Unlock()
	if _, exists := ep.extensions[name]; exists {
		return false
	}
	ep.extensions[name] = extension
	return true
}

// Unregister removes the named checker
func (ep *checkerExt) Unregister(name string) bool {
	ep.Lock()
	defer ep.Unlock()
	if _, exists := ep.extensions[name]; !exists {
		return false
	}
	delete(ep.extensions, name)
	return true
}

// Lookup returns the named checker factory, or nil
func (ep *checkerExt) Lookup(name string) Factory {
	ep.Lock()
	defer ep.Unlock()
	return ep.extensions[name]
}

// All returns a copy of the registered checker factories
func (ep *checkerExt) All() map[string]Factory {
	ep.Lock()
	defer ep.Unlock()
	all := make(map[string]Factory)
	for k, v := range ep.extensions {
		all[k] = v
	}
	return all
}

// Names returns the registered checker names
func (ep *checkerExt) Names() []string {
	ep.Lock()
	defer ep.Unlock()
	var names []string
	for k := range ep.extensions {
		names = append(names, k)
	}
	return names
}
