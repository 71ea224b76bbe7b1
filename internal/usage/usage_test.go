package usage

import (
	"errors"
	"strings"
	"testing"

	. "github.com/onsi/gomega"
)

const dfOutput = `Filesystem        1B-blocks         Used    Available Use% Mounted on
udev             8188030976            0   8188030976   0% /dev
tmpfs            1643638784      2179072   1641459712   1% /run
/dev/nvme0n1p2 502468108288 201394319360 275447779328  43% /
/dev/sda1        1071644672    6426624   1065218048   1% /boot/efi
map auto_home             0            0            0 100% /System/Volumes/Data/home
/dev/sdb1        notanumber         0            0   0% /mnt/broken
`

func TestParseSkipsHeaderAndMalformedRows(t *testing.T) {
	g := NewWithT(t)

	usages, err := Parse(strings.NewReader(dfOutput))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(usages).To(HaveLen(4))

	g.Expect(usages[0].Filesystem).To(Equal("udev"))
	root := usages[2]
	g.Expect(root.Filesystem).To(Equal("/dev/nvme0n1p2"))
	g.Expect(root.Blocks).To(Equal(uint64(502468108288)))
	g.Expect(root.Used).To(Equal(uint64(201394319360)))
	g.Expect(root.Available).To(Equal(uint64(275447779328)))
	g.Expect(root.Percent).To(Equal(uint32(43)))
	g.Expect(root.MountPoint).To(Equal("/"))
}

func TestParseHeaderOnly(t *testing.T) {
	g := NewWithT(t)

	usages, err := Parse(strings.NewReader("Filesystem 1B-blocks Used Available Use% Mounted on\n"))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(usages).To(BeEmpty())
}

func TestParseRowErrors(t *testing.T) {
	g := NewWithT(t)

	_, err := parseRow(3, "/dev/sda1 1 2 3 4%")
	var perr *ParseError
	g.Expect(errors.As(err, &perr)).To(BeTrue())
	g.Expect(perr.Line).To(Equal(3))

	_, err = parseRow(4, "/dev/sda1 1 2 3 x% /mnt")
	g.Expect(err).To(HaveOccurred())
}

func TestLookupMatchesBySuffix(t *testing.T) {
	g := NewWithT(t)

	usages := []*Usage{
		{Filesystem: "/dev/sda11", MountPoint: "/data"},
		{Filesystem: "/dev/sda1", MountPoint: "/boot"},
	}

	g.Expect(Lookup(usages, "sda1")).To(Equal(usages[1]))
	g.Expect(Lookup(usages, "sda11")).To(Equal(usages[0]))
	g.Expect(Lookup(usages, "sdb1")).To(BeNil())
	g.Expect(Lookup(usages, "")).To(BeNil())
}
