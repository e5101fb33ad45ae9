package connmon

import "sort"

// sortByEndpointPort orders connections by counted endpoint port, keeping
// snapshot order among equal ports.
func sortByEndpointPort(conns []Connection) {
	sort.SliceStable(conns, func(i, j int) bool {
		return conns[i].Endpoint().Port() < conns[j].Endpoint().Port()
	})
}

// sortGroups orders groups by process name, byte-wise ascending.
func sortGroups(groups []Group) {
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Process < groups[j].Process
	})
}
