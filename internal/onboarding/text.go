package onboarding

const (
	textHomeInitial    = "The Internet can be kinda creepy.\n\nNot to worry! Searching and browsing privately is easier than you think."
	textHomeSubsequent = "Next, try visiting one of your favorite sites!\n\nI'll block trackers so they can't spy on you. I'll also upgrade the security of your connection if possible."

	textAfterSearch                = "Your DuckDuckGo searches are anonymous and I never store your search history. Ever."
	textWithoutTrackers            = "As you tap and scroll, I'll block pesky trackers.\n\nGo ahead, keep browsing!"
	textSiteIsMajorTracker         = "Heads up! This site is part of a major tracking network.\n\nTheir trackers lurk on many top sites, but I block them from seeing your activity there."
	textSiteOwnedByMajorTracker    = "Heads up! %[1]s is owned by %[2]s.\n\n%[2]s's trackers lurk on about %.0[3]f%% of top websites, but don't worry! I'll block them from seeing your activity on those sites."
	textOneMajorTracker            = "%s was trying to track you here. I blocked them!"
	textOneMajorTrackerWithOthers  = "%s and %d others were trying to track you here. I blocked them!"
	textTwoMajorTrackers           = "%s and %s were trying to track you here. I blocked them!"
	textTwoMajorTrackersWithOthers = "%s, %s and %d others were trying to track you here. I blocked them!"

	ctaAfterSearch = "Phew!"
	ctaGotIt       = "Got It"
	ctaHighFive    = "High Five!"
)
