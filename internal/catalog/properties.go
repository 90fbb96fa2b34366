package catalog

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// PackageVersionProperty names a single-valued property of a manifest.
type PackageVersionProperty int

const (
	PropertyID PackageVersionProperty = iota
	PropertyName
	PropertyMoniker
	PropertyVersion
	PropertyChannel
	PropertyRelativePath
	PropertyManifestSHA256Hash
	PropertyArpMinVersion
	PropertyArpMaxVersion
)

var propertyNames = [...]string{
	PropertyID:                 "Id",
	PropertyName:               "Name",
	PropertyMoniker:            "Moniker",
	PropertyVersion:            "Version",
	PropertyChannel:            "Channel",
	PropertyRelativePath:       "RelativePath",
	PropertyManifestSHA256Hash: "ManifestSHA256Hash",
	PropertyArpMinVersion:      "ArpMinVersion",
	PropertyArpMaxVersion:      "ArpMaxVersion",
}

func (p PackageVersionProperty) String() string {
	if p >= 0 && int(p) < len(propertyNames) {
		return propertyNames[p]
	}
	return "Unknown"
}

// MultiProperty names a multi-valued property of a manifest.
type MultiProperty int

const (
	MultiPropertyTag MultiProperty = iota
	MultiPropertyCommand
	MultiPropertyPackageFamilyName
	MultiPropertyProductCode
	MultiPropertyUpgradeCode
	MultiPropertyNormalizedName
	MultiPropertyNormalizedPublisher
	MultiPropertyNormalizedNamePublisher
)

var multiPropertyNames = [...]string{
	MultiPropertyTag:                 "Tag",
	MultiPropertyCommand:             "Command",
	MultiPropertyPackageFamilyName:   "PackageFamilyName",
	MultiPropertyProductCode:         "ProductCode",
	MultiPropertyUpgradeCode:         "UpgradeCode",
	MultiPropertyNormalizedName:      "NormalizedName",
	MultiPropertyNormalizedPublisher: "NormalizedPublisher",

	MultiPropertyNormalizedNamePublisher: "NormalizedNamePublisher",
}

func (p MultiProperty) String() string {
	if p >= 0 && int(p) < len(multiPropertyNames) {
		return multiPropertyNames[p]
	}
	return "Unknown"
}

// ParseMultiProperty converts a name such as "tag" into a MultiProperty.
func ParseMultiProperty(s string) (MultiProperty, bool) {
	for i, name := range multiPropertyNames {
		if strings.EqualFold(name, s) {
			return MultiProperty(i), true
		}
	}
	return 0, false
}

// GetPropertyByManifestID returns a property of a manifest. ok is false
// when the layout has no such property or the manifest has no value for an
// optional one.
//
// ARP versions are not tracked before 1.5. Through the 1.x layouts a
// manifest without ARP entries reports an empty range; single-version
// layouts report it absent.
func (c *Catalog) GetPropertyByManifestID(id ManifestID, p PackageVersionProperty) (value string, ok bool, err error) {
	rec, _, err := c.schema.readRecord(c.db(), int64(id))
	if err != nil {
		return "", false, err
	}

	switch p {
	case PropertyID:
		return rec.id, true, nil
	case PropertyName:
		return rec.name, true, nil
	case PropertyMoniker:
		return rec.moniker, rec.moniker != "", nil
	case PropertyVersion:
		return rec.version, true, nil
	case PropertyChannel:
		return rec.channel, c.schema.channels, nil
	case PropertyRelativePath:
		return rec.path, rec.path != "", nil
	case PropertyManifestSHA256Hash:
		if !c.schema.hash || len(rec.hash) == 0 {
			return "", false, nil
		}
		return hex.EncodeToString(rec.hash), true, nil
	case PropertyArpMinVersion, PropertyArpMaxVersion:
		if !c.schema.arp {
			return "", false, nil
		}
		v := rec.arpMin
		if p == PropertyArpMaxVersion {
			v = rec.arpMax
		}
		if v == "" && !c.schema.channels {
			return "", false, nil
		}
		return v, true, nil
	}
	return "", false, fmt.Errorf("unknown property %d", p)
}

// GetMultiPropertyByManifestID returns the values of a multi-valued
// property, sorted. Properties the layout does not support yield nothing.
func (c *Catalog) GetMultiPropertyByManifestID(id ManifestID, p MultiProperty) ([]string, error) {
	f, ok := c.schema.multiField(p)
	if !ok {
		return nil, nil
	}
	return f.table.Values(c.db(), int64(id))
}
