package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shmel1k/mcmgr/internal/registry"
)

const protocolVersion = "0.2.1"

// ReleaseVersion is the hard-coded release string emitted by VERSION.
var ReleaseVersion = "mcmgr/1.0.0"

// OutputFormat selects the DUMP/INFO/VERSION representation, chosen by
// the Accept header.
type OutputFormat int

const (
	FormatText OutputFormat = iota
	FormatXML
	FormatJSON
)

func FormatFromAccept(accept string) OutputFormat {
	switch {
	case strings.Contains(accept, "application/json"):
		return FormatJSON
	case strings.Contains(accept, "text/xml"):
		return FormatXML
	default:
		return FormatText
	}
}

// Dump enumerates the node, balancer, host, context and domain tables;
// the session-id table is not included. The JSON form carries all five;
// the text and XML forms list nodes, hosts and contexts only.
type Dump struct {
	Reg *registry.Registry
}

type dumpDoc struct {
	Nodes     []registry.Node     `json:"nodes" xml:"node"`
	Balancers []registry.Balancer `json:"balancers" xml:"balancer"`
	Hosts     []registry.Host     `json:"hosts" xml:"host"`
	Contexts  []registry.Context  `json:"contexts" xml:"context"`
	Domains   []registry.Domain   `json:"domains" xml:"domain"`
}

func (d *Dump) snapshot() dumpDoc {
	var doc dumpDoc
	d.Reg.EachNode(func(_ int, n registry.Node) { doc.Nodes = append(doc.Nodes, n) })
	for _, id := range d.Reg.BalancerIDs() {
		if b, ok := d.Reg.ReadBalancer(id); ok {
			doc.Balancers = append(doc.Balancers, b)
		}
	}
	d.Reg.EachHost(func(_ int, h registry.Host) { doc.Hosts = append(doc.Hosts, h) })
	d.Reg.EachContext(func(_ int, c registry.Context) { doc.Contexts = append(doc.Contexts, c) })
	for _, id := range d.Reg.DomainIDs() {
		if dm, ok := d.Reg.ReadDomain(id); ok {
			doc.Domains = append(doc.Domains, dm)
		}
	}
	return doc
}

func (d *Dump) Process(format OutputFormat) []byte {
	doc := d.snapshot()
	switch format {
	case FormatJSON:
		b, _ := json.Marshal(doc)
		return b
	case FormatXML:
		var sb strings.Builder
		sb.WriteString("<?xml version=\"1.0\" standalone=\"yes\" ?>\n<dump>\n")
		for _, n := range doc.Nodes {
			fmt.Fprintf(&sb, "<node id=\"%d\" route=\"%s\" balancer=\"%s\" host=\"%s\" port=\"%s\" type=\"%s\"/>\n",
				n.ID, n.JVMRoute, n.Balancer, n.Host, n.Port, n.Type)
		}
		for _, h := range doc.Hosts {
			fmt.Fprintf(&sb, "<host id=\"%d\" node=\"%d\" vhost=\"%d\" alias=\"%s\"/>\n", h.ID, h.NodeID, h.VHostID, h.Alias)
		}
		for _, c := range doc.Contexts {
			fmt.Fprintf(&sb, "<context id=\"%d\" node=\"%d\" vhost=\"%d\" path=\"%s\" status=\"%s\"/>\n",
				c.ID, c.NodeID, c.VHostID, c.Path, c.Status)
		}
		sb.WriteString("</dump>\n")
		return []byte(sb.String())
	default:
		var sb strings.Builder
		for _, n := range doc.Nodes {
			fmt.Fprintf(&sb, "Node: [%d],Name: %s,Balancer: %s,Host: %s,Port: %s,Type: %s\n",
				n.ID, n.JVMRoute, n.Balancer, n.Host, n.Port, n.Type)
		}
		for _, h := range doc.Hosts {
			fmt.Fprintf(&sb, "Host: %d,Alias: %s,Context: node:%d,vhost:%d\n", h.ID, h.Alias, h.NodeID, h.VHostID)
		}
		for _, c := range doc.Contexts {
			fmt.Fprintf(&sb, "Context: %d,Context: %s,Status: %s\n", c.ID, c.Path, c.Status)
		}
		return []byte(sb.String())
	}
}

// Info is DUMP's counterpart focused on node tuning parameters; it walks
// the node table itself and renders the node conf fields the native
// manager's process_info emits. It has text and JSON forms; FormatXML
// gets the text form.
type Info struct {
	Reg *registry.Registry
}

func (in *Info) Process(format OutputFormat) []byte {
	var sb strings.Builder
	in.Reg.EachNode(func(_ int, n registry.Node) {
		fmt.Fprintf(&sb, "Node: [%d],Balancer: %s,LBGroup: %s,Host: %s,Port: %s,Type: %s,"+
			"flushpackets: %d,flushwait: %d,ping: %d,smax: %d,ttl: %d,timeout: %d\n",
			n.ID, n.Balancer, n.Domain, n.Host, n.Port, n.Type,
			int(n.FlushPackets), int(n.FlushWait.Milliseconds()), int(n.Ping.Seconds()), n.Smax,
			int(n.TTL.Seconds()), int(n.Timeout.Seconds()))
	})
	if format == FormatJSON {
		var nodes []registry.Node
		in.Reg.EachNode(func(_ int, n registry.Node) { nodes = append(nodes, n) })
		b, _ := json.Marshal(nodes)
		return b
	}
	return []byte(sb.String())
}

// Version emits the hard-coded release string and protocol version.
type Version struct{}

func (Version) Process(format OutputFormat) []byte {
	switch format {
	case FormatXML:
		return []byte(fmt.Sprintf(
			"<?xml version=\"1.0\" standalone=\"yes\" ?>\n<version><release>%s</release><protocol>%s</protocol></version>\n",
			ReleaseVersion, protocolVersion))
	case FormatJSON:
		b, _ := json.Marshal(struct {
			Release  string `json:"release"`
			Protocol string `json:"protocol"`
		}{ReleaseVersion, protocolVersion})
		return b
	default:
		return []byte(fmt.Sprintf("release: %s, protocol: %s\n", ReleaseVersion, protocolVersion))
	}
}
