package tiktok

// TikTok 的界面树经常随版本变化，所有定位表达式集中放在这里维护。
const (
	shopTabXPath = `//android.widget.TextView[@resource-id="android:id/text1" and @text="商城"] | ` +
		`//android.widget.TextView[@resource-id="com.zhiliaoapp.musically:id/title" and (@text="商城" or @text="Shop")]`

	// 商城首页搜索栏里的相机图标
	cameraIconXPath = `//androidx.recyclerview.widget.RecyclerView[starts-with(@resource-id,"com.zhiliaoapp.musically:id/")]` +
		`/android.widget.FrameLayout/android.widget.FrameLayout/com.ss.android.ugc.aweme.ecommerce.ui.EcomFlattenUIImage[2]`

	firstGalleryImageXPath = `//android.widget.GridView[starts-with(@resource-id,"com.zhiliaoapp.musically:id/")]/android.view.ViewGroup[1]`

	// DefaultProductXPath 图搜结果中的商品卡片，{slot} 替换为卡片序号
	DefaultProductXPath = `//android.widget.FrameLayout[starts-with(@resource-id,"com.zhiliaoapp.musically:id/")]` +
		`/android.widget.FrameLayout/android.widget.FrameLayout/com.lynx.tasm.behavior.ui.view.UIComponent[{slot}]`

	shareButtonXPath = `//android.widget.ImageView[@content-desc="分享"]`
	copyLinkXPath    = `//android.widget.TextView[contains(@text,"复制链接")]`

	// 从商品详情误入视频播放页时出现的返回按钮
	videoBackButtonXPath = `//android.widget.ImageView[@content-desc="返回"]`
)
