package monitor

import "github.com/genricoloni/playerwatch/internal/domain"

const (
	mprisPath        = "/org/mpris/MediaPlayer2"
	mprisInterface   = domain.MprisBusPrefix
	mprisPlayerIface = domain.MprisBusPrefix + ".Player"

	dbusInterface  = "org.freedesktop.DBus"
	dbusPropsIface = "org.freedesktop.DBus.Properties"

	dbusListNames        = dbusInterface + ".ListNames"
	dbusGetNameOwner     = dbusInterface + ".GetNameOwner"
	dbusNameOwnerChanged = dbusInterface + ".NameOwnerChanged"

	dbusPropGet            = dbusPropsIface + ".Get"
	dbusPropGetAll         = dbusPropsIface + ".GetAll"
	dbusPropertiesChanged  = dbusPropsIface + ".PropertiesChanged"
	mprisSeeked            = mprisPlayerIface + ".Seeked"
	mprisPlayerNamePrefix  = domain.MprisBusPrefix + "."
	defaultSignalQueueSize = 32
)
