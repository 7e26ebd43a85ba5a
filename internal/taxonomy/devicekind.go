// Kestrel - Surveillance Device Detection and Threat Analysis
// Copyright 2026 Kestrel Security Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

package taxonomy

// DeviceKind identifies the class of device a detection refers to.
type DeviceKind string

// Cellular interception equipment.
const (
	KindIMSICatcher          DeviceKind = "imsi_catcher"
	KindCellSiteSimulator    DeviceKind = "cell_site_simulator"
	KindRogueBaseStation     DeviceKind = "rogue_base_station"
	KindFemtocellInterceptor DeviceKind = "femtocell_interceptor"
	KindCellularJammer       DeviceKind = "cellular_jammer"
)

// WiFi attack and interception equipment.
const (
	KindWiFiPineapple     DeviceKind = "wifi_pineapple"
	KindEvilTwinAP        DeviceKind = "evil_twin_ap"
	KindKarmaAP           DeviceKind = "karma_ap"
	KindRogueAccessPoint  DeviceKind = "rogue_access_point"
	KindPacketInterceptor DeviceKind = "packet_interceptor"
	KindDeauthAttacker    DeviceKind = "deauth_attacker"
	KindHoneypotAP        DeviceKind = "honeypot_ap"
	KindHiddenStrongAP    DeviceKind = "hidden_strong_ap"
	KindLegacyWEPNetwork  DeviceKind = "legacy_wep_network"
)

// Trackers and tags.
const (
	KindAirTag            DeviceKind = "airtag"
	KindFindMyAccessory   DeviceKind = "findmy_accessory"
	KindTileTracker       DeviceKind = "tile_tracker"
	KindSmartTag          DeviceKind = "smarttag"
	KindChipoloTracker    DeviceKind = "chipolo_tracker"
	KindUnknownBLETracker DeviceKind = "unknown_ble_tracker"
	KindGPSVehicleTracker DeviceKind = "gps_vehicle_tracker"
	KindOBDTracker        DeviceKind = "obd_tracker"
	KindMagneticTracker   DeviceKind = "magnetic_tracker"
	KindPetTracker        DeviceKind = "pet_tracker"
	KindAssetTag          DeviceKind = "asset_tag"
)

// Audio, optical and covert recording devices.
const (
	KindHiddenMicrophone DeviceKind = "hidden_microphone"
	KindHiddenCamera     DeviceKind = "hidden_camera"
	KindLaserMicrophone  DeviceKind = "laser_microphone"
	KindVoiceRecorder    DeviceKind = "voice_recorder"
	KindUltrasonicBeacon DeviceKind = "ultrasonic_beacon"
	KindIRIlluminator    DeviceKind = "ir_illuminator"
)

// Generic RF equipment.
const (
	KindBugTransmitter      DeviceKind = "bug_transmitter"
	KindRFJammer            DeviceKind = "rf_jammer"
	KindGNSSJammer          DeviceKind = "gnss_jammer"
	KindGNSSSpoofer         DeviceKind = "gnss_spoofer"
	KindSubGHzReplayDevice  DeviceKind = "subghz_replay_device"
	KindKeyFobCloner        DeviceKind = "keyfob_cloner"
	KindWidebandTransmitter DeviceKind = "wideband_transmitter"
	KindRepeaterRelay       DeviceKind = "repeater_relay"
	KindDroneController     DeviceKind = "drone_controller"
	KindDroneTelemetry      DeviceKind = "drone_telemetry"
	KindTPMSSniffer         DeviceKind = "tpms_sniffer"
)

// Fixed surveillance infrastructure.
const (
	KindALPRCamera         DeviceKind = "alpr_camera"
	KindFacialRecogCamera  DeviceKind = "facial_recognition_camera"
	KindCCTVCamera         DeviceKind = "cctv_camera"
	KindSpeedCamera        DeviceKind = "speed_camera"
	KindBodycam            DeviceKind = "bodycam"
	KindGunshotSensor      DeviceKind = "acoustic_gunshot_sensor"
	KindCrowdAnalytics     DeviceKind = "crowd_analytics_sensor"
	KindTrafficSensor      DeviceKind = "traffic_sensor"
	KindSmartStreetlight   DeviceKind = "smart_streetlight"
	KindTollTagReader      DeviceKind = "toll_tag_reader"
	KindWiFiProbeCollector DeviceKind = "wifi_probe_collector"
)

// Consumer devices and nuisance emitters.
const (
	KindBLESpamDevice      DeviceKind = "ble_spam_device"
	KindProbeRequestSpam   DeviceKind = "probe_request_spammer"
	KindAdvertisingBeacon  DeviceKind = "advertising_beacon"
	KindRetailBeacon       DeviceKind = "retail_beacon"
	KindSmartSpeaker       DeviceKind = "smart_speaker"
	KindSmartTV            DeviceKind = "smart_tv"
	KindSmartDoorbell      DeviceKind = "smart_doorbell"
	KindSecurityCamera     DeviceKind = "security_camera"
	KindBabyMonitor        DeviceKind = "baby_monitor"
	KindFitnessTracker     DeviceKind = "fitness_tracker"
	KindSmartwatch         DeviceKind = "smartwatch"
	KindWirelessEarbuds    DeviceKind = "wireless_earbuds"
	KindSmartphone         DeviceKind = "smartphone"
	KindLaptop             DeviceKind = "laptop"
	KindIoTSensor          DeviceKind = "iot_sensor"
	KindWirelessRouter     DeviceKind = "wireless_router"
	KindMeshNode           DeviceKind = "mesh_node"
	KindSmartMeter         DeviceKind = "smart_meter"
	KindWeatherStation     DeviceKind = "weather_station"
	KindUnknownDevice      DeviceKind = "unknown_device"
)

// NeutralImpact is the fallback impact factor for device kinds that are
// missing from the table. Lookup misses are a calibration problem, not a
// runtime error.
const NeutralImpact = 1.0

// impactTable maps every known device kind to its impact factor.
// Values are bounded to [0.5, 2.0]: 2.0 means the device intercepts all
// communication or causes physical harm, 0.5 means passive infrastructure.
// The table is immutable; it is only ever read after init.
var impactTable = map[DeviceKind]float64{
	// Interception of all communication.
	KindIMSICatcher:          2.0,
	KindCellSiteSimulator:    2.0,
	KindWiFiPineapple:        2.0,
	KindGNSSSpoofer:          2.0,
	KindRogueBaseStation:     1.9,
	KindLaserMicrophone:      1.9,
	KindPacketInterceptor:    1.9,
	KindEvilTwinAP:           1.8,
	KindKarmaAP:              1.8,
	KindFemtocellInterceptor: 1.8,
	KindHiddenMicrophone:     1.8,
	KindHiddenCamera:         1.8,
	KindBugTransmitter:       1.8,
	KindGNSSJammer:           1.8,

	// Active attack or targeted tracking.
	KindRogueAccessPoint:   1.7,
	KindCellularJammer:     1.7,
	KindRFJammer:           1.7,
	KindGPSVehicleTracker:  1.7,
	KindDeauthAttacker:     1.6,
	KindOBDTracker:         1.6,
	KindMagneticTracker:    1.6,
	KindKeyFobCloner:       1.6,
	KindFacialRecogCamera:  1.6,
	KindAirTag:             1.5,
	KindUnknownBLETracker:  1.5,
	KindHoneypotAP:         1.5,
	KindVoiceRecorder:      1.5,
	KindSubGHzReplayDevice: 1.5,

	// Surveillance infrastructure and consumer trackers.
	KindFindMyAccessory:     1.4,
	KindTileTracker:         1.4,
	KindSmartTag:            1.4,
	KindALPRCamera:          1.4,
	KindWidebandTransmitter: 1.4,
	KindChipoloTracker:      1.3,
	KindBodycam:             1.3,
	KindUltrasonicBeacon:    1.3,
	KindRepeaterRelay:       1.3,
	KindDroneController:     1.3,
	KindCCTVCamera:          1.2,
	KindCrowdAnalytics:      1.2,
	KindSecurityCamera:      1.2,
	KindHiddenStrongAP:      1.2,
	KindIRIlluminator:       1.2,
	KindDroneTelemetry:      1.2,
	KindWiFiProbeCollector:  1.2,
	KindGunshotSensor:       1.1,
	KindSmartDoorbell:       1.1,
	KindTPMSSniffer:         1.1,
	KindTollTagReader:       1.1,

	// Ambient consumer devices.
	KindSpeedCamera:       1.0,
	KindSmartSpeaker:      1.0,
	KindBabyMonitor:       1.0,
	KindUnknownDevice:     1.0,
	KindSmartTV:           0.9,
	KindPetTracker:        0.9,
	KindBLESpamDevice:     0.9,
	KindProbeRequestSpam:  0.9,
	KindSmartphone:        0.8,
	KindLegacyWEPNetwork:  0.8,
	KindIoTSensor:         0.8,
	KindFitnessTracker:    0.7,
	KindSmartwatch:        0.7,
	KindLaptop:            0.7,
	KindAdvertisingBeacon: 0.7,
	KindAssetTag:          0.7,

	// Passive infrastructure.
	KindWirelessEarbuds:  0.6,
	KindWirelessRouter:   0.6,
	KindMeshNode:         0.6,
	KindRetailBeacon:     0.6,
	KindTrafficSensor:    0.6,
	KindSmartStreetlight: 0.5,
	KindSmartMeter:       0.5,
	KindWeatherStation:   0.5,
}

// Impact returns the impact factor for the given device kind. The second
// return value reports whether the kind was found in the table; callers
// that receive false should log the miss for calibration review and use
// the returned NeutralImpact value as-is.
func Impact(kind DeviceKind) (float64, bool) {
	if f, ok := impactTable[kind]; ok {
		return f, true
	}
	return NeutralImpact, false
}

// KnownKinds returns every device kind present in the impact table.
// The result is a fresh slice; callers may sort or mutate it freely.
func KnownKinds() []DeviceKind {
	kinds := make([]DeviceKind, 0, len(impactTable))
	for k := range impactTable {
		kinds = append(kinds, k)
	}
	return kinds
}

// String implements fmt.Stringer.
func (k DeviceKind) String() string {
	return string(k)
}
